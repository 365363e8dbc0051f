// Package loader resolves dot-separated module names to script bytes.
//
// Exactly one strategy is active per configuration:
//
//	FileLoader    root + "a/b/c.lua"
//	BundleLoader  prefix + "a/b/c.bytes" inside a pre-opened Bundle
//
// The choice is a mode switch made by New from config.UseBundle, never a
// fallback cascade. A SignedLoader can wrap either strategy to require a
// detached signature per module.
//
// A missing file or bundle entry is reported as errors.KindNotFound. A missing
// bundle container while bundle mode is active is a configuration problem: it is
// logged at error level once and every load reports NotFound wrapping
// ErrBundleMissing.
package loader
