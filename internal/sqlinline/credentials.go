package sqlinline

const QSelectCredential = `--sql 1a2b3c4d-5e6f-7a8b-9c0d-1e2f3a4b5c6d
select provider, endpoint, token, model, quality, extra
from credentials
where owner_id = $1 and capability = $2;
`

const QUpsertCredential = `--sql 3c4d5e6f-7a8b-9c0d-1e2f-3a4b5c6d7e8f
insert into credentials (
  owner_id, capability, provider, endpoint, token, model, quality, extra, created_at, updated_at
)
values ($1, $2, $3, $4, $5, $6, $7, coalesce($8::jsonb, '{}'::jsonb), now(), now())
on conflict (owner_id, capability) do update set
  provider = excluded.provider,
  endpoint = excluded.endpoint,
  token = excluded.token,
  model = excluded.model,
  quality = excluded.quality,
  extra = excluded.extra,
  updated_at = now();
`
