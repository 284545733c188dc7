package ledgerstore

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"drinkPassAPI/internal/types/entitlement"
)

// FirestoreStore keeps entitlement records in a Firestore collection.
// Records are keyed by generated document IDs with publicKey as the lookup
// field; both operations run inside Firestore transactions so concurrent
// scans of the same guest cannot double-insert or over-redeem.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreStore initializes the Firestore client. Credentials come from
// a Base64-encoded service account JSON if provided, else from a local key
// file (same fallback order the rest of our Firebase tooling uses).
func NewFirestoreStore(ctx context.Context, credsB64, credsFile, collection string) (*FirestoreStore, error) {
	var opt option.ClientOption

	if credsB64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(credsB64)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 firebase credentials: %v", err)
		}
		opt = option.WithCredentialsJSON(decoded)
		log.Println("Ledger Store: Initializing Firestore from FIREBASE_SERVICE_ACCOUNT_JSON environment variable.")
	} else {
		if _, err := os.Stat(credsFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("local firebase file not found: %s, and FIREBASE_SERVICE_ACCOUNT_JSON is not set", credsFile)
		}
		opt = option.WithCredentialsFile(credsFile)
		log.Printf("Ledger Store: Initializing Firestore from local file: %s.", credsFile)
	}

	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %v", err)
	}

	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting firestore client: %v", err)
	}

	return &FirestoreStore{client: client, collection: collection}, nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func (s *FirestoreStore) FindOrCreate(ctx context.Context, rec *entitlement.Record) (*entitlement.Record, bool, error) {
	var out entitlement.Record
	var created bool

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		created = false

		// The lookup runs inside the transaction so a concurrent insert of
		// the same public key forces a retry instead of a duplicate.
		query := s.client.Collection(s.collection).
			Where("publicKey", "==", rec.PublicKey).
			Limit(1)

		iter := tx.Documents(query)
		defer iter.Stop()

		doc, err := iter.Next()
		if err == nil {
			if err := doc.DataTo(&out); err != nil {
				return fmt.Errorf("decode entitlement record: %w", err)
			}
			out.ID = doc.Ref.ID
			return nil
		}
		if err != iterator.Done {
			return err
		}

		ref := s.client.Collection(s.collection).Doc(uuid.New().String())
		out = *rec
		out.ID = ref.ID
		if err := tx.Create(ref, &out); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to find or create entitlement record: %w", err)
	}

	return &out, created, nil
}

func (s *FirestoreStore) Decrement(ctx context.Context, id string, kind entitlement.Kind, now time.Time) (*entitlement.Record, error) {
	ref := s.client.Collection(s.collection).Doc(id)

	var out entitlement.Record
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return ErrRecordVanished
			}
			return err
		}

		if err := doc.DataTo(&out); err != nil {
			return fmt.Errorf("decode entitlement record: %w", err)
		}
		out.ID = doc.Ref.ID

		field := "remainingDrinks"
		remaining := out.RemainingDrinks
		if kind == entitlement.KindMeal {
			field = "remainingMeals"
			remaining = out.RemainingMeals
		}

		if remaining <= 0 {
			return ErrExhausted
		}
		remaining--

		// Counter, redemption type and timestamp go out as one write; a
		// partial update would leave the audit trail lying.
		if err := tx.Update(ref, []firestore.Update{
			{Path: field, Value: remaining},
			{Path: "lastRedemptionType", Value: string(kind)},
			{Path: "lastRedemptionAt", Value: now},
		}); err != nil {
			return err
		}

		if kind == entitlement.KindMeal {
			out.RemainingMeals = remaining
		} else {
			out.RemainingDrinks = remaining
		}
		out.LastRedemptionType = kind
		out.LastRedemptionAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &out, nil
}
