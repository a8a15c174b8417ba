// Package position implements the PositionTracker: a dedicated fill-event
// subscriber that is the sole owner of position state, avoiding
// back-references from Order to Position. Everything else, chiefly the
// Risk Monitor, only ever queries it read-only.
package position
