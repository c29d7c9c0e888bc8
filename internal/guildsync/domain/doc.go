// Package domain defines the campaign entities the channel synchronizer keeps
// in step with Discord, and the pure policy that maps each entity to the
// channel it should own: canonical name, topic, permission overwrites, and
// sort tier.
package domain
