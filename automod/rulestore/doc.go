// Automod component holding moderation rules, per-guild configuration, global keyword lists, and false-positive feedback.
//
// State lives in memory and is written back, as a whole snapshot, to a pluggable Repository: in-process memory, a JSON file, a redis key, or a SQL table via gorm.
package rulestore
