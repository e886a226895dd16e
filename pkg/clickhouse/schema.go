package clickhouse

import "fmt"

// Schema returns the idempotent DDL for the tick archive in database.
func Schema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.ticks (
	tick_id String,
	trigger LowCardinality(String),
	started_at DateTime64(3),
	finished_at DateTime64(3),
	records UInt32,
	failures UInt32,
	sentiment_score Nullable(Float64),
	volatility LowCardinality(String),
	attempts UInt8,
	alerts UInt32,
	summary String
) ENGINE = MergeTree
PARTITION BY toYYYYMM(started_at)
ORDER BY (started_at, tick_id)`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.alerts (
	tick_id String,
	rule_id LowCardinality(String),
	severity LowCardinality(String),
	subject String,
	field LowCardinality(String),
	value Float64,
	message String,
	fired_at DateTime64(3)
) ENGINE = MergeTree
PARTITION BY toYYYYMM(fired_at)
ORDER BY (fired_at, rule_id)`, database),
	}
}
