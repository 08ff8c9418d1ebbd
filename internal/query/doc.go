// Package query answers natural-language questions over an indexed
// codebase: it embeds the question, retrieves the most similar chunks and
// asks an answer generator for a grounded, cited response.
package query
