/*
Package s3 ships archives to an S3-compatible bucket.

The default target is Backblaze B2 through its S3 API, but any endpoint
that speaks S3 works, including AWS itself.

# Architecture Overview

	┌──────────────────────────────────────────┐
	│        archive.Archiver (upload step)    │
	└──────────────────────────────────────────┘
	                    │ types.BucketFactory
	┌──────────────────────────────────────────┐
	│  Factory.Open: fresh client per archive  │
	└──────────────────────────────────────────┘
	                    │
	┌──────────────────────────────────────────┐
	│ Bucket.Upload                            │
	│   CargoShip transporter (optional)       │
	│   └─ fallback: PutObject                 │
	└──────────────────────────────────────────┘

A client is built for every Open call so credential changes between two
archives are picked up without a restart. Bucket.HealthCheck issues a
HeadBucket and is used at startup to fail fast on bad credentials.

# Usage

	factory, err := s3.NewFactory(&s3.Config{
		Bucket:          "mpyk-archive",
		Region:          "us-west-001",
		Endpoint:        "https://s3.us-west-001.backblazeb2.com",
		AccessKeyID:     os.Getenv("B2_APP_KEY_ID"),
		SecretAccessKey: os.Getenv("B2_APP_KEY"),
		ForcePathStyle:  true,
		StorageTier:     s3.TierStandard,
	}, logger)
	if err != nil {
		return err
	}
	archiver, err := archive.New(archiveCfg, pool, factory.Open, logger, metrics)

# Storage Tiers

StorageTier accepts the S3 storage class names (STANDARD, STANDARD_IA,
ONEZONE_IA, GLACIER, DEEP_ARCHIVE, INTELLIGENT_TIERING, ...). Backblaze
only honours STANDARD; other providers may reject unknown classes.
*/
package s3
