// Package config provides YAML configuration loading and validation for the
// voicescribe service. Every timing heuristic of the pipeline is a
// configurable value here rather than a hard-coded constant.
package config
