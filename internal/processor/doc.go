// Package processor validates raw collector messages and enriches them
// with station metadata before handing them to the handlers.
package processor
