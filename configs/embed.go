// Package configs provides the embedded configuration template written by
// 'askdoc init'. Embedding keeps the template available in source builds
// and binary releases alike.
package configs

import _ "embed"

// ExampleConfig is the annotated default configuration template.
//
//go:embed askdoc.example.yaml
var ExampleConfig []byte
