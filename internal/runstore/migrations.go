package runstore

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    schedule_id TEXT NOT NULL,
    tool TEXT NOT NULL,
    origin TEXT NOT NULL,
    phase TEXT NOT NULL,
    started_at TIMESTAMP,
    finished_at TIMESTAMP,
    elapsed_seconds INTEGER,
    message TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_schedule_id ON runs(schedule_id);
CREATE INDEX IF NOT EXISTS idx_runs_tool ON runs(tool);
CREATE INDEX IF NOT EXISTS idx_runs_phase ON runs(phase);
`
