package sqlinline

const QProjectInsert = `--sql 2a3b4c5d-6e7f-8a9b-0c1d-2e3f4a5b6c7d
insert into projects(
  id, owner_id, name, concept, style, target_duration, aspect_ratio,
  config, created_at, updated_at, plan, plan_approved, active_job_id
)
values ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, now(), now(), null, false, null);
`

const QProjectGet = `--sql 4c5d6e7f-8a9b-0c1d-2e3f-4a5b6c7d8e9f
select
  id, owner_id, name, concept, style, target_duration, aspect_ratio,
  config, created_at, updated_at, plan, plan_approved, active_job_id
from projects
where id = $1 and owner_id = $2;
`

const QProjectUpdatePlan = `--sql 6e7f8a9b-0c1d-2e3f-4a5b-6c7d8e9f0a1b
update projects
set plan = $3::jsonb, plan_approved = false, updated_at = now()
where id = $1 and owner_id = $2;
`

const QProjectApprove = `--sql 8a9b0c1d-2e3f-4a5b-6c7d-8e9f0a1b2c3d
update projects
set plan_approved = true, updated_at = now()
where id = $1 and owner_id = $2 and plan is not null;
`

const QProjectSetActiveJob = `--sql 0c1d2e3f-4a5b-6c7d-8e9f-0a1b2c3d4e5f
update projects
set active_job_id = $3, updated_at = now()
where id = $1 and owner_id = $2;
`
