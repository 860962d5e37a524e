// Package cadence triggers the engine's periodic jobs (driver pass,
// consistency check) on cron or interval schedules.
//
// It only triggers. The jobs themselves serialize on the engine lock, and a
// run that is still in flight causes the next trigger to be skipped.
package cadence
