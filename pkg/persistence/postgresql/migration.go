package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE journeys (
				id BIGINT PRIMARY KEY,
				account_id BIGINT NOT NULL DEFAULT 0,
				campaign_id BIGINT NOT NULL DEFAULT 0,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				is_active BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE journey_steps (
				id BIGINT PRIMARY KEY,
				journey_id BIGINT NOT NULL REFERENCES journeys(id) ON DELETE CASCADE,
				name VARCHAR(255) NOT NULL,
				step_order INT NOT NULL DEFAULT 0,
				step_type VARCHAR(50) NOT NULL,
				template_id BIGINT,
				config JSONB NOT NULL DEFAULT '{}',
				is_entry_point BOOLEAN NOT NULL DEFAULT false,
				is_active BOOLEAN NOT NULL DEFAULT true
			);

			CREATE INDEX idx_journey_steps_journey_id ON journey_steps(journey_id);
			CREATE INDEX idx_journey_steps_entry ON journey_steps(journey_id, step_order) WHERE is_entry_point AND is_active;

			CREATE TABLE journey_step_connections (
				id BIGINT PRIMARY KEY,
				journey_id BIGINT NOT NULL REFERENCES journeys(id) ON DELETE CASCADE,
				from_step_id BIGINT NOT NULL REFERENCES journey_steps(id) ON DELETE CASCADE,
				to_step_id BIGINT NOT NULL REFERENCES journey_steps(id) ON DELETE CASCADE,
				priority INT NOT NULL DEFAULT 0,
				is_active BOOLEAN NOT NULL DEFAULT true,
				condition_label VARCHAR(50) NOT NULL DEFAULT '',
				trigger_type VARCHAR(50) NOT NULL,
				delay_duration INT NOT NULL DEFAULT 0,
				delay_unit VARCHAR(20) NOT NULL DEFAULT '',
				event_type VARCHAR(255) NOT NULL DEFAULT '',
				funnel_step_id BIGINT NOT NULL DEFAULT 0,
				condition_type VARCHAR(50) NOT NULL DEFAULT '',
				field_source VARCHAR(50) NOT NULL DEFAULT '',
				field_name VARCHAR(255) NOT NULL DEFAULT '',
				field_value TEXT NOT NULL DEFAULT ''
			);

			CREATE INDEX idx_journey_step_connections_from ON journey_step_connections(from_step_id, priority, id);

			CREATE TABLE leads (
				id BIGINT PRIMARY KEY,
				status VARCHAR(50) NOT NULL DEFAULT '',
				email VARCHAR(255) NOT NULL DEFAULT '',
				phone_number VARCHAR(50) NOT NULL DEFAULT '',
				first_name VARCHAR(255) NOT NULL DEFAULT '',
				last_name VARCHAR(255) NOT NULL DEFAULT '',
				score DOUBLE PRECISION,
				funnel_step_id BIGINT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				last_contacted_at TIMESTAMP WITH TIME ZONE,
				fields JSONB NOT NULL DEFAULT '{}',
				related JSONB NOT NULL DEFAULT '{}',
				custom JSONB NOT NULL DEFAULT '{}'
			);

			CREATE TABLE journey_participants (
				id BIGSERIAL PRIMARY KEY,
				journey_id BIGINT NOT NULL REFERENCES journeys(id),
				lead_id BIGINT NOT NULL,
				current_step_id BIGINT,
				status VARCHAR(50) NOT NULL CHECK (status IN ('active', 'completed', 'exited', 'paused', 'opted_out')),
				version BIGINT NOT NULL DEFAULT 0,
				entered_at TIMESTAMP WITH TIME ZONE NOT NULL,
				last_event_at TIMESTAMP WITH TIME ZONE,
				exited_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_journey_participants_active ON journey_participants(status) WHERE current_step_id IS NOT NULL;
			CREATE INDEX idx_journey_participants_lead ON journey_participants(lead_id);

			CREATE TABLE journey_events (
				id BIGSERIAL PRIMARY KEY,
				participant_id BIGINT NOT NULL REFERENCES journey_participants(id) ON DELETE CASCADE,
				step_id BIGINT NOT NULL,
				event_type VARCHAR(50) NOT NULL,
				event_timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
				metadata JSONB NOT NULL DEFAULT '{}'
			);

			CREATE INDEX idx_journey_events_lookup ON journey_events(participant_id, step_id, event_type, id DESC);
		`,
	}
}
