// Package extract turns rendered listing pages into raw course records.
//
// Each registered source pairs a URL with one of a closed set of variants:
//   - static_catalog: one fixed item selector, fields read once per item.
//   - dynamic_app: waits for any of an ordered list of item selectors to
//     render (client-side apps) before extracting.
//   - table_listing: rows mapped by cell position, short rows dropped.
//   - card_listing: cards located by selector fallback, fields by per-field
//     selector fallback.
//
// Extractors never return errors. Navigation, wait, and evaluation failures are
// logged and the source contributes zero records. Every call opens exactly one
// page and closes it on every exit path.
package extract
