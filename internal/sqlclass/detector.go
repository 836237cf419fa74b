// Package sqlclass decides whether a SQL statement writes to the database.
// It is a keyword classifier, not a parser.
package sqlclass

import (
	"regexp"
	"strings"
)

var (
	blockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	lineComment  = regexp.MustCompile(`--[^\n]*`)
	cteWrite     = regexp.MustCompile(`\b(INSERT|UPDATE|DELETE)\b`)
)

var writePrefixes = []string{
	"INSERT",
	"UPDATE",
	"DELETE",
	"CREATE",
	"DROP",
	"ALTER",
	"REPLACE",
	"VACUUM",
	"REINDEX",
	"ANALYZE",
	"ATTACH",
	"DETACH",
	"SAVEPOINT",
	"RELEASE",
	"ROLLBACK",
}

// Detector classifies SQL statements
type Detector struct{}

// NewDetector creates a Detector
func NewDetector() *Detector {
	return &Detector{}
}

// IsWriteOperation reports whether sql must run on the primary
func (d *Detector) IsWriteOperation(sql string) bool {
	stmt := strings.ToUpper(strings.TrimSpace(stripComments(sql)))
	if stmt == "" {
		return false
	}

	for _, prefix := range writePrefixes {
		if strings.HasPrefix(stmt, prefix) {
			return true
		}
	}

	switch {
	case strings.HasPrefix(stmt, "PRAGMA"):
		return strings.Contains(stmt, "=")
	case strings.HasPrefix(stmt, "WITH"):
		return cteWrite.MatchString(stmt)
	}
	return false
}

func stripComments(sql string) string {
	sql = blockComment.ReplaceAllString(sql, " ")
	return lineComment.ReplaceAllString(sql, " ")
}
