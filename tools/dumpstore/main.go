// Command dumpstore prints the contents of one local index bucket, optionally
// filtered to a single content id. Useful for inspecting what the cascade
// will see without starting the server.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"github.com/spf13/afero"

	"magnetar/config"
	"magnetar/services/store"
	"magnetar/utils/mediaid"
)

func main() {
	var (
		configPath = flag.String("config", "data/settings.json", "path to settings file")
		bucket     = flag.String("bucket", config.BucketPrimary, "bucket to dump")
		id         = flag.String("id", "", "restrict to one content id")
	)
	flag.Parse()

	settings, err := config.NewManager(*configPath).Load()
	if err != nil {
		log.Fatalf("load settings: %v", err)
	}

	st := store.New(*bucket, settings.Stores.Path(*bucket), afero.NewOsFs())
	if err := st.Load(); err != nil {
		log.Fatalf("load bucket %s: %v", *bucket, err)
	}
	fmt.Printf("bucket %s: %d records (%s)\n", *bucket, st.Count(), settings.Stores.Path(*bucket))

	if *id == "" {
		return
	}
	records, err := st.Query(mediaid.Classify(*id), store.QueryOptions{})
	if err != nil {
		log.Fatalf("query %s: %v", *id, err)
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "HASH\tQUALITY\tSEEDERS\tSIZE\tPROVIDER\tNAME")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			rec.InfoHash(), rec.Quality, rec.Seeders, rec.Size, rec.Provider, rec.Name)
	}
	w.Flush()
}
