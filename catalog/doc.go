// Package catalog loads the compliance control catalog and keeps one
// embedding per control.
//
// A catalog is read from a Source, normalized into core.Control values and
// cached as a whole under cache.CatalogKey. When the source is missing the
// knowledge base falls back to a small built-in catalog so analysis keeps
// working with reduced coverage.
//
// Catalog files map control ids to records. A record is either a plain
// string (the control name) or a table with name, description and keywords:
//
//	{
//	  "metadata": {"standard": "ISO/IEC 27002"},
//	  "5.1": {"name": "Information security policies", "keywords": ["policy"]},
//	  "5.2": "Information security roles and responsibilities"
//	}
//
// Controls without keywords get keywords generated from their name.
package catalog
