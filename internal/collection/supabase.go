package collection

import (
	"bytes"
	"fmt"

	"github.com/supabase-community/supabase-go"
)

// SupabaseSnapshots mirrors captured frames to a Supabase storage bucket.
type SupabaseSnapshots struct {
	client *supabase.Client
	bucket string
}

// NewSupabaseSnapshots returns nil when the project is not configured so
// the store runs without remote mirroring.
func NewSupabaseSnapshots(url, serviceKey, bucket string) (*SupabaseSnapshots, error) {
	if url == "" || serviceKey == "" || bucket == "" {
		return nil, nil
	}
	client, err := supabase.NewClient(url, serviceKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	return &SupabaseSnapshots{client: client, bucket: bucket}, nil
}

func (s *SupabaseSnapshots) Upload(key, contentType string, data []byte) error {
	_, err := s.client.Storage.UploadFile(s.bucket, key, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to upload snapshot: %w", err)
	}
	return nil
}
