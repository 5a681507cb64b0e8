// Package staging defines the filename format used to hand off finalized
// segment files from the recorder to the sweeper. The participant identifier
// is embedded in the name so the sweeper can recover it without external
// metadata.
package staging
