// Package cron schedules memoryd's periodic work, chiefly the hybrid
// sync wake.
package cron

import (
	"context"
	"time"
)

// Job is a named task run on a schedule. Schedule returns a 5-field cron
// expression or a descriptor such as "@every 30s"; Run must honour ctx.
type Job interface {
	Name() string
	Schedule() string
	Run(ctx context.Context) error
}

// FuncJob adapts a function to the Job interface.
type FuncJob struct {
	JobName string
	Expr    string
	Fn      func(ctx context.Context) error
}

// Compile-time interface check.
var _ Job = (*FuncJob)(nil)

// Every returns a job running fn once per interval. Intervals below one
// second are rounded up by the scheduler.
func Every(name string, interval time.Duration, fn func(ctx context.Context) error) *FuncJob {
	return &FuncJob{JobName: name, Expr: "@every " + interval.String(), Fn: fn}
}

// Name implements Job.
func (j *FuncJob) Name() string { return j.JobName }

// Schedule implements Job.
func (j *FuncJob) Schedule() string { return j.Expr }

// Run implements Job.
func (j *FuncJob) Run(ctx context.Context) error {
	if j.Fn == nil {
		return nil
	}
	return j.Fn(ctx)
}
