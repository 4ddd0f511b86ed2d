package sqlinline

const QJobInsert = `--sql 9c9e7e10-2b1a-4c5e-8b39-0a6a8b9c1d2e
insert into jobs(
  id, project_id, owner_id, aspect_ratio, phase, progress, shots,
  final_artifact_url, error_message, poll_attempts, compile_request_id,
  cancel_requested, compile_provider, compile_retry_count, created_at, updated_at
)
values ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9, $10, $11, $12, $13, $14, now(), now());
`

const QJobGet = `--sql 1f3b5d7e-4a6c-4e8f-9a1b-2c3d4e5f6a7b
select
  id, project_id, owner_id, aspect_ratio, phase, progress, shots,
  final_artifact_url, error_message, poll_attempts, compile_request_id,
  cancel_requested, compile_provider, compile_retry_count, created_at, updated_at
from jobs
where id = $1 and owner_id = $2;
`

const QJobClaimLease = `--sql 7a8b9c0d-1e2f-3a4b-5c6d-7e8f9a0b1c2d
with next_job as (
  select id
  from jobs
  where id = $1 and owner_id = $2
  for update skip locked
  limit 1
)
select
  j.id, j.project_id, j.owner_id, j.aspect_ratio, j.phase, j.progress, j.shots,
  j.final_artifact_url, j.error_message, j.poll_attempts, j.compile_request_id,
  j.cancel_requested, j.compile_provider, j.compile_retry_count, j.created_at, j.updated_at
from jobs j
where j.id in (select id from next_job);
`

const QJobCommit = `--sql 3d4e5f6a-7b8c-9d0e-1f2a-3b4c5d6e7f8a
update jobs
set
  phase = $3,
  progress = $4,
  shots = $5::jsonb,
  final_artifact_url = $6,
  error_message = $7,
  poll_attempts = $8,
  compile_request_id = $9,
  compile_retry_count = $10,
  updated_at = now()
where id = $1 and owner_id = $2;
`

const QJobListResumable = `--sql 5e6f7a8b-9c0d-1e2f-3a4b-5c6d7e8f9a0b
select
  id, project_id, owner_id, aspect_ratio, phase, progress, shots,
  final_artifact_url, error_message, poll_attempts, compile_request_id,
  cancel_requested, compile_provider, compile_retry_count, created_at, updated_at
from jobs
where phase not in ('Complete', 'Failed');
`
