package inmemory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jts-services/portal/internal/jobs"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, j := range []*jobs.PaymentJob{
		{JobID: "a", OwnerID: "o1", InvoiceID: "inv-1", Status: jobs.JobStatusCompleted},
		{JobID: "b", OwnerID: "o1", InvoiceID: "inv-2", Status: jobs.JobStatusFailed},
		{JobID: "c", OwnerID: "o2", InvoiceID: "inv-3", Status: jobs.JobStatusCompleted},
	} {
		j.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := s.SaveJob(ctx, j); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.SaveJob(ctx, &jobs.PaymentJob{}); err == nil {
		t.Error("SaveJob() without id expected error")
	}

	tests := []struct {
		name   string
		filter jobs.JobFilter
		want   []string
	}{
		{"all newest first", jobs.JobFilter{}, []string{"c", "b", "a"}},
		{"by owner", jobs.JobFilter{OwnerID: "o1"}, []string{"b", "a"}},
		{"by status", jobs.JobFilter{Status: jobs.JobStatusCompleted}, []string{"c", "a"}},
		{"by invoice", jobs.JobFilter{InvoiceID: "inv-2"}, []string{"b"}},
		{"limit", jobs.JobFilter{Limit: 1}, []string{"c"}},
		{"offset", jobs.JobFilter{Offset: 2}, []string{"a"}},
		{"offset past end", jobs.JobFilter{Offset: 5}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListJobs(ctx, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ListJobs() = %d jobs, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].JobID != tt.want[i] {
					t.Errorf("job %d = %s, want %s", i, got[i].JobID, tt.want[i])
				}
			}
		})
	}

	if err := s.UpdateJobStatus(ctx, "b", jobs.JobStatusPending, ""); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetJob(ctx, "b")
	if got.Status != jobs.JobStatusPending {
		t.Errorf("Status = %s, want pending", got.Status)
	}

	got.Status = jobs.JobStatusFailed
	again, _ := s.GetJob(ctx, "b")
	if again.Status != jobs.JobStatusPending {
		t.Error("GetJob must return a copy")
	}

	if _, err := s.GetJob(ctx, "zzz"); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Errorf("GetJob() error = %v, want ErrJobNotFound", err)
	}
	if err := s.UpdateJobStatus(ctx, "zzz", jobs.JobStatusFailed, "x"); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Errorf("UpdateJobStatus() error = %v, want ErrJobNotFound", err)
	}
}
