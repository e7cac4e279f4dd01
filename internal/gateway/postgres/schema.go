package postgres

// schemaDDL is applied on startup. It mirrors the production Supabase
// schema, minus the row-level-security policies that only make sense when
// browsers talk to the database directly.
const schemaDDL = `
create table if not exists users (
  id uuid primary key,
  username text unique not null,
  email text unique not null,
  photo_url text,
  is_admin boolean default false,
  digger_score integer default 0,
  total_likes integer default 0,
  tracks_submitted integer default 0,
  fcm_tokens text default '[]',
  notifications_enabled boolean default false,
  created_at timestamp with time zone default timezone('utc'::text, now()) not null
);

create table if not exists tracks (
  id uuid primary key,
  user_id uuid references users(id) on delete cascade not null,
  title text not null,
  artist text not null,
  platform text not null check (platform in ('spotify', 'youtube', 'soundcloud')),
  url text not null,
  embed_url text not null,
  submitted_by text not null,
  likes integer default 0,
  created_at timestamp with time zone default timezone('utc'::text, now()) not null
);

create table if not exists messages (
  id uuid primary key,
  user_id uuid references users(id) on delete set null,
  username text not null,
  message text not null,
  is_admin boolean default false,
  photo_url text,
  created_at timestamp with time zone default timezone('utc'::text, now()) not null
);

create table if not exists comments (
  id uuid primary key,
  track_id uuid references tracks(id) on delete cascade not null,
  user_id uuid references users(id) on delete set null,
  username text not null,
  text text not null,
  created_at timestamp with time zone default timezone('utc'::text, now()) not null
);

create table if not exists notifications (
  id uuid primary key,
  user_id uuid references users(id) on delete cascade not null,
  type text not null check (type in ('like', 'comment')),
  track_id uuid references tracks(id) on delete cascade,
  track_title text not null,
  from_user_id uuid references users(id) on delete set null,
  from_username text not null,
  comment_text text,
  read boolean default false,
  created_at timestamp with time zone default timezone('utc'::text, now()) not null
);

create table if not exists push_queue (
  id uuid primary key,
  user_id uuid not null,
  type text not null,
  track_id uuid,
  track_title text,
  from_username text,
  comment_text text,
  processed boolean default false,
  created_at timestamp with time zone default timezone('utc'::text, now()) not null
);

create index if not exists tracks_user_id_idx on tracks(user_id);
create index if not exists tracks_created_at_idx on tracks(created_at desc);
create index if not exists messages_created_at_idx on messages(created_at desc);
create index if not exists comments_track_id_idx on comments(track_id);
create index if not exists comments_created_at_idx on comments(created_at desc);
create index if not exists notifications_user_id_idx on notifications(user_id);
create index if not exists notifications_created_at_idx on notifications(created_at desc);
create index if not exists notifications_read_idx on notifications(read) where read = false;
create index if not exists push_queue_processed_idx on push_queue(processed) where processed = false;
`
