// Package selectors keeps ranked lists of candidate element locators for
// each UI role on the generator and distributor sites.
//
// A locator is either a CSS selector or a CSS selector followed by "::" and a
// regular expression matched against the element text. The registry learns
// from lookups: successes move a locator to the front of its group and
// failures move it to the back. Orderings survive restarts through a Store;
// FileStore shares one JSON document between processes with an advisory lock
// and writes it atomically.
package selectors
