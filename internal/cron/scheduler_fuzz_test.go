package cron

import (
	"testing"
	"time"
)

func FuzzEverySchedule(f *testing.F) {
	f.Add(int64(time.Second))
	f.Add(int64(30 * time.Second))
	f.Add(int64(5 * time.Minute))
	f.Add(int64(1500 * time.Millisecond))
	f.Add(int64(time.Nanosecond))

	f.Fuzz(func(t *testing.T, n int64) {
		d := time.Duration(n)
		if d <= 0 {
			t.Skip()
		}
		job := Every(syncLikeJob, d, nil)
		if err := ValidateSchedule(job.Schedule()); err != nil {
			t.Errorf("Every(%v) produced an invalid schedule: %v", d, err)
		}
	})
}

func FuzzValidateSchedule(f *testing.F) {
	f.Add("@every 30s")
	f.Add("*/5 * * * *")
	f.Add("@hourly")
	f.Add("@every -1s")
	f.Add("")

	f.Fuzz(func(_ *testing.T, expr string) {
		_ = ValidateSchedule(expr)
	})
}

const syncLikeJob = "memory.sync"
