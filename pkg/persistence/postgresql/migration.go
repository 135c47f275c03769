package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Archive of finished canvas runs
			CREATE TABLE run_summaries (
				id VARCHAR(255) PRIMARY KEY,
				canvas_id VARCHAR(255) NOT NULL,
				serial_id VARCHAR(255) NOT NULL,
				params JSONB DEFAULT '{}',
				status VARCHAR(50) NOT NULL,
				outcome VARCHAR(50) NOT NULL,
				attempts INTEGER NOT NULL DEFAULT 0,
				error_message TEXT,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				finished_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_run_summaries_canvas_finished ON run_summaries(canvas_id, finished_at DESC);
			CREATE INDEX idx_run_summaries_outcome ON run_summaries(outcome);
		`,
		2: `
			-- Final node records of each run
			CREATE TABLE run_records (
				run_id VARCHAR(255) NOT NULL REFERENCES run_summaries(id) ON DELETE CASCADE,
				node_id VARCHAR(255) NOT NULL,
				sub_index INTEGER NOT NULL DEFAULT -1,
				status VARCHAR(50) NOT NULL,
				start_time BIGINT,
				end_time BIGINT,
				duration DOUBLE PRECISION,
				inputs JSONB,
				outputs JSONB,
				error_message TEXT,
				PRIMARY KEY (run_id, node_id, sub_index)
			);
		`,
	}
}
