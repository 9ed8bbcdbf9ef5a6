package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/spf13/pflag"

	"github.com/dhruvbuilds/strategia-connect/internal/config"
	"github.com/dhruvbuilds/strategia-connect/internal/docstore"
	"github.com/dhruvbuilds/strategia-connect/internal/services"
)

// Eventarc delivers CloudEvents; for GCS finalized events the body contains
// the object's bucket, name and metadata.
type gcsFinalizeEvent struct {
	Bucket   string            `json:"bucket"`
	Name     string            `json:"name"`
	Metadata map[string]string `json:"metadata"`
}

// cloudEventEnvelope handles structured content mode where the GCS payload is
// nested inside a "data" field.
type cloudEventEnvelope struct {
	Data gcsFinalizeEvent `json:"data"`
}

type worker struct {
	bucket     string
	moderation *services.ModerationService
}

func main() {
	cfg := config.Load()
	port := pflag.StringP("port", "p", "8080", "listen port")
	cfg.BindFlags(pflag.CommandLine)
	pflag.Parse()

	ctx := context.Background()
	if cfg.AvatarBucket == "" {
		log.Fatalf("AVATAR_BUCKET is not set")
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.Backend, err)
	}
	defer store.Close()

	objects, err := services.NewGCSObjectStore(ctx, cfg.AvatarBucket)
	if err != nil {
		log.Fatalf("Failed to create storage client: %v", err)
	}
	defer objects.Close()

	detector, err := services.NewVisionDetector(ctx)
	if err != nil {
		log.Fatalf("Failed to create Vision client: %v", err)
	}

	wk := &worker{
		bucket:     cfg.AvatarBucket,
		moderation: services.NewModerationService(detector, objects, &services.ModerationActions{Store: store}),
	}

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	http.HandleFunc("/events", wk.handleFinalize)

	log.Printf("moderation-worker listening on :%s (store=%s bucket=%s)", *port, cfg.Backend, cfg.AvatarBucket)
	log.Fatal(http.ListenAndServe(":"+*port, nil))
}

func (wk *worker) handleFinalize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		log.Printf("[worker] rejected non-POST method=%s", r.Method)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	log.Printf("[worker] event received: Ce-Type=%s Ce-Subject=%s", r.Header.Get("Ce-Type"), r.Header.Get("Ce-Subject"))

	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		log.Printf("[worker] failed to read request body: %v", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	ev, err := parseFinalizeEvent(rawBody)
	if err != nil {
		log.Printf("[worker] failed to decode event body: %v", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if ev.Bucket == "" || ev.Name == "" {
		log.Printf("[worker] skipping event: bucket or name is empty")
		w.WriteHeader(http.StatusOK)
		return
	}
	if ev.Bucket != wk.bucket {
		log.Printf("[worker] skipping event for other bucket=%s", ev.Bucket)
		w.WriteHeader(http.StatusOK)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	res, err := wk.moderation.Moderate(ctx, ev.Name, ev.Metadata)
	switch {
	case errors.Is(err, services.ErrImageRejected):
		log.Printf("[worker] DONE (unsafe): name=%s profile=%s", ev.Name, res.ProfileID)
	case err != nil:
		// Eventarc retries on 5xx.
		log.Printf("[worker] moderation failed name=%s err=%v", ev.Name, err)
		http.Error(w, "moderation failed", http.StatusInternalServerError)
		return
	case res.Skipped:
		log.Printf("[worker] DONE (skipped): name=%s", ev.Name)
	default:
		log.Printf("[worker] DONE (safe): name=%s profile=%s url=%s", ev.Name, res.ProfileID, res.ApprovedURL)
	}
	w.WriteHeader(http.StatusOK)
}

// parseFinalizeEvent accepts both binary mode (GCS object at the top level)
// and structured mode (object under "data").
func parseFinalizeEvent(raw []byte) (gcsFinalizeEvent, error) {
	var ev gcsFinalizeEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return ev, err
	}
	if ev.Bucket != "" && ev.Name != "" {
		return ev, nil
	}
	var envelope cloudEventEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Data.Bucket != "" && envelope.Data.Name != "" {
		return envelope.Data, nil
	}
	return ev, nil
}

func openStore(ctx context.Context, cfg *config.Config) (docstore.Store, error) {
	switch cfg.Backend {
	case config.BackendMongo:
		return docstore.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDB)
	case config.BackendFirestore:
		return docstore.NewFirestoreStore(ctx, docstore.FirestoreConfig{
			ProjectID:       cfg.FirebaseProjectID,
			CredentialsJSON: cfg.FirebaseCredentialsJSON,
		})
	default:
		return nil, errors.New("the moderation worker needs the firestore or mongo backend")
	}
}
