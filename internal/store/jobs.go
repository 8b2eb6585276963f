// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"fmt"
)

// InsertScheduledJob appends a pending job and returns its id.
func (q *Queries) InsertScheduledJob(ctx context.Context, jobType string, targetID *int64, executeAt, payloadJSON, now string) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO scheduled_jobs (job_type, target_id, execute_at, status, payload_json, created_at)
		 VALUES (?, ?, ?, 'pending', ?, ?)`,
		jobType, targetID, executeAt, payloadJSON, now,
	)
	if err != nil {
		return 0, fmt.Errorf("store: insert job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: job id: %w", err)
	}
	return id, nil
}

// DueJobs returns pending jobs due at or before now, oldest first.
func (q *Queries) DueJobs(ctx context.Context, now string) ([]ScheduledJob, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, job_type, target_id, execute_at, status, payload_json, created_at
		 FROM scheduled_jobs
		 WHERE status='pending' AND execute_at <= ?
		 ORDER BY execute_at ASC, id ASC`, now,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list due jobs: %w", err)
	}
	defer rows.Close()

	var jobs []ScheduledJob
	for rows.Next() {
		var j ScheduledJob
		if err := rows.Scan(&j.ID, &j.JobType, &j.TargetID, &j.ExecuteAt, &j.Status, &j.PayloadJSON, &j.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate jobs: %w", err)
	}
	return jobs, nil
}

// CountDuePending counts pending jobs due at or before now.
func (q *Queries) CountDuePending(ctx context.Context, now string) (int64, error) {
	return q.countRow(ctx,
		`SELECT COUNT(*) FROM scheduled_jobs WHERE status='pending' AND execute_at <= ?`, now)
}

// SetJobStatus moves a job to a terminal status.
func (q *Queries) SetJobStatus(ctx context.Context, id int64, status string) error {
	if _, err := q.db.ExecContext(ctx,
		`UPDATE scheduled_jobs SET status=? WHERE id=?`, status, id,
	); err != nil {
		return fmt.Errorf("store: update job status: %w", err)
	}
	return nil
}

// CancelAllPending moves every pending job to cancelled and returns the
// count. Invoked when the kill switch turns on.
func (q *Queries) CancelAllPending(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE scheduled_jobs SET status='cancelled' WHERE status='pending'`)
	if err != nil {
		return 0, fmt.Errorf("store: cancel pending jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: cancelled count: %w", err)
	}
	return n, nil
}
