// Package report turns per-control scores into a banded compliance report.
package report
