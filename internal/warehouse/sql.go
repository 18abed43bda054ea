package warehouse

import (
	"fmt"
	"strings"

	"cardpulse/internal/domain"
)

// S3 location of a dated partition folder, with trailing slash.
func partitionLocation(bucket, folder string, day domain.RunDate) string {
	return fmt.Sprintf("s3://%s/%s/", bucket, domain.PartitionPrefix(folder, day))
}

func addPartitionSQL(table, location string, day domain.RunDate) string {
	return fmt.Sprintf(`ALTER TABLE %s ADD IF NOT EXISTS
PARTITION (year='%s', month='%s', day='%s')
LOCATION '%s'`, table, day.Year(), day.Month(), day.Day(), location)
}

func setLocationSQL(table, location string) string {
	return fmt.Sprintf(`ALTER TABLE %s
SET LOCATION '%s'`, table, location)
}

func mergeSQL(ledger, source string, day domain.RunDate) string {
	return fmt.Sprintf(`MERGE INTO %s AS target
USING (
    SELECT
        id,
        CAST(usd AS DECIMAL(10, 2)) AS usd,
        CAST(usd_foil AS DECIMAL(10, 2)) AS usd_foil,
        CAST(pull_date AS DATE) AS pull_date
    FROM %s
    WHERE year = '%s'
    AND month = '%s'
    AND day = '%s'
) AS source
ON target.id = source.id AND target.pull_date = source.pull_date
WHEN NOT MATCHED THEN
INSERT (id, usd, usd_foil, pull_date)
VALUES (source.id, source.usd, source.usd_foil, source.pull_date)`,
		ledger, source, day.Year(), day.Month(), day.Day())
}

func countSQL(ledger string, day domain.RunDate) string {
	return fmt.Sprintf(`SELECT count(*) AS total_count
FROM %s
WHERE date(pull_date) = date('%s')`, ledger, day.Formatted())
}

// trendSQL pins every date to the request so that re-running a past day
// extracts the same window.
func trendSQL(req TrendRequest) string {
	var dates []string
	for _, d := range req.TrendDates() {
		dates = append(dates, fmt.Sprintf("DATE '%s'", d.Formatted()))
	}
	return fmt.Sprintf(`SELECT
  price.id,
  CAST(static.tcgplayer_id AS INT) AS tcgplayer_id,
  static.name,
  static.set_name,
  static.set_type,
  static.released_at,
  price.usd,
  price.pull_date
FROM %s AS price
INNER JOIN %s AS static ON price.id = static.id
WHERE price.usd IS NOT NULL
  AND price.usd <> 0
  AND CAST(static.released_at AS DATE) >= DATE '%s'
  AND CAST(price.pull_date AS DATE) IN (%s)`,
		req.Ledger, req.Static, req.ReleasedSince().Formatted(), strings.Join(dates, ", "))
}
