// Package control implements the generic path-following controller used by
// vehicle guidance laws. The Controller consumes navigation estimates and
// path commands, maintains the tracking geometry for the active segment,
// watches for along-track and cross-track divergence, and drives the
// enable/disable life cycle of the low-level control loops. Concrete
// guidance laws implement the Law interface and receive the tracking state
// once per control period.
package control
