package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/egrangel/facerecon-sub001/internal/data"
	"github.com/egrangel/facerecon-sub001/internal/detector"
	"github.com/egrangel/facerecon-sub001/internal/faceindex"
)

// Offline enrollment: run one image through the detector sidecar and store
// the resulting embedding as an active person face. The server picks new
// faces up on its next index rebuild.
func main() {
	imagePath := flag.String("image", "", "Path to a JPEG with exactly one face")
	personID := flag.Int64("person-id", 0, "Enroll a face for an existing person")
	personName := flag.String("person-name", "", "Create a new person with this name")
	orgID := flag.Int64("org-id", 1, "Organization id")
	flag.Parse()

	if *imagePath == "" {
		log.Fatal("-image is required")
	}
	if *personID == 0 && *personName == "" {
		log.Fatal("one of -person-id or -person-name is required")
	}

	dbHost := envOr("DB_HOST", "localhost")
	dbUser := envOr("DB_USER", "facerecon")
	dbPass := envOr("DB_PASSWORD", "facerecon")
	dbName := envOr("DB_NAME", "facerecon")
	detectorURL := envOr("DETECTOR_URL", "http://localhost:8000")

	connStr := fmt.Sprintf("postgres://%s:%s@%s:5432/%s?sslmode=disable", dbUser, dbPass, dbHost, dbName)
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	image, err := os.ReadFile(*imagePath)
	if err != nil {
		log.Fatalf("Reading image: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := detector.NewHTTPClient(detectorURL, os.Getenv("DETECTOR_API_KEY"))
	if err := client.Initialize(ctx); err != nil {
		log.Fatalf("Detector init: %v", err)
	}
	defer client.Close()

	result, err := client.Detect(ctx, image)
	if err != nil {
		log.Fatalf("Detection: %v", err)
	}
	if len(result.Faces) == 0 {
		log.Fatal("No face found in image")
	}
	if len(result.Faces) > 1 {
		log.Fatalf("Expected one face, found %d. Crop the image and retry.", len(result.Faces))
	}
	face := result.Faces[0]
	if len(face.Embedding) == 0 {
		log.Fatal("Detector returned no embedding")
	}

	persons := data.PersonModel{DB: db}
	faces := data.PersonFaceModel{DB: db}

	pid := *personID
	if pid == 0 {
		p := &data.Person{
			OrganizationID: *orgID,
			Name:           *personName,
			Status:         "active",
		}
		if err := persons.Create(ctx, p); err != nil {
			log.Fatalf("Creating person: %v", err)
		}
		pid = p.ID
		fmt.Printf("Created person %d (%s)\n", pid, *personName)
	} else {
		if _, err := persons.GetByID(ctx, pid); err != nil {
			log.Fatalf("Loading person %d: %v", pid, err)
		}
	}

	pf := &data.PersonFace{
		PersonID:       pid,
		OrganizationID: *orgID,
		Embedding:      faceindex.EncodeVector(face.Embedding),
		Reliability:    face.Confidence,
		Status:         "active",
	}
	if err := faces.Create(ctx, pf); err != nil {
		log.Fatalf("Creating person face: %v", err)
	}

	fmt.Printf("SUCCESS: enrolled face %d for person %d (dimension %d, confidence %.2f)\n",
		pf.ID, pid, len(face.Embedding), face.Confidence)
	fmt.Println("Run POST /api/v1/face-recognition/index/rebuild to load it into a running server.")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
