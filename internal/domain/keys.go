package domain

import "fmt"

// PartitionPrefix returns the Hive-style partition folder for a dataset:
//
//	<dataset>/year=YYYY/month=MM/day=DD
func PartitionPrefix(dataset string, d RunDate) string {
	return fmt.Sprintf("%s/year=%s/month=%s/day=%s", dataset, d.Year(), d.Month(), d.Day())
}

// PartitionKey returns the object key of a dated file inside a partition:
//
//	<dataset>/year=YYYY/month=MM/day=DD/<filename>_YYYYMMDD.<ext>
func PartitionKey(dataset, filename, ext string, d RunDate) string {
	return fmt.Sprintf("%s/%s_%s.%s", PartitionPrefix(dataset, d), filename, d.Short(), ext)
}

// SnapshotKey returns the object key of the raw bulk snapshot for a date.
func SnapshotKey(d RunDate) string {
	return fmt.Sprintf("mtg_temp_json/all_cards_%s.json", d.Short())
}

// TrendExtractKey returns the object key of the materialized trend extract.
func TrendExtractKey(d RunDate) string {
	return fmt.Sprintf("mtg_temp_daily/%s_daily_out_raw.csv", d.Short())
}
