// Package config loads compiler settings and plan documents.
//
// Settings files may be written in CUE, YAML, or JSON and are layered
// over defaults. Plan documents are plain JSON or CUE; CUE sources are
// evaluated and exported through JSON so plans can use constraints and
// templating.
package config
