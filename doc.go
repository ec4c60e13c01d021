// Package hciconnectors crawls external sources page by page and hands every
// record, with its metadata and optionally its content, to a destination.
//
// # Architecture
//
// A source opens one session in Initialize and releases it in Close. Its
// Root record names the configured table, share folder or index; List
// returns a lazy iterator over the children of a container, fetching the
// next page only when the current one is consumed; Get and Open re-resolve a
// record by URI so a crawl can be resumed from any record it has emitted.
//
// Sources:
//   - sqldb: a table or query (SQL Server, MySQL, PostgreSQL)
//   - cifs: a folder on an SMB2/3 share, or a local directory
//   - solr: the documents of a Solr collection
//
// Destinations:
//   - jsonl: newline-delimited JSON, optionally compressed
//   - hcp: an HCP namespace or other S3 compatible bucket
//
// # Quick Start
//
//	cfg := config.NewBaseConfig("finance", "cifs")
//	cfg.Properties["host"] = "filer01"
//	cfg.Properties["share"] = "finance"
//	cfg.Security.Credentials["username"] = "crawler"
//	cfg.Security.Credentials["password"] = os.Getenv("SMB_PASSWORD")
//
//	src, err := registry.CreateSource("cifs", cfg)
//	if err != nil {
//	    return err
//	}
//	if err := src.Initialize(ctx, cfg); err != nil {
//	    return err
//	}
//	defer src.Close(ctx)
//
//	stats, err := pipeline.NewCrawlPipeline(src, dst, pipeline.Options{
//	    FetchContent: true,
//	}, logger.Get()).Run(ctx)
//
// The hcicrawl command wraps the same flow around YAML configuration files:
//
//	hcicrawl init cifs --out share.yaml
//	hcicrawl validate --source share.yaml
//	hcicrawl crawl --source share.yaml --destination out.yaml
package hciconnectors
