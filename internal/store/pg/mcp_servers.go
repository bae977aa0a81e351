package pg

import (
	"context"
	"database/sql"
	"errors"

	"github.com/familyassistant/core/internal/store"
)

// MCPServerStore is the Postgres-backed remote-tool server config store
// (§4.5). Secret fields are persisted verbatim; any "$ENV_VAR_NAME"
// indirection is resolved by the caller at load time (§6.6), not here.
type MCPServerStore struct {
	db *sql.DB
}

func NewMCPServerStore(db *sql.DB) *MCPServerStore {
	return &MCPServerStore{db: db}
}

const mcpServerColumns = `name, transport, command, args, url, headers, env,
	api_key, tool_prefix, timeout_sec, enabled`

func scanMCPServer(row rowScanner) (store.MCPServerConfig, error) {
	var c store.MCPServerConfig
	var command, url, apiKey, toolPrefix *string
	var args, headers, env []byte
	if err := row.Scan(
		&c.Name, &c.Transport, &command, &args, &url, &headers, &env,
		&apiKey, &toolPrefix, &c.TimeoutSec, &c.Enabled,
	); err != nil {
		return store.MCPServerConfig{}, err
	}
	c.Command = derefStr(command)
	c.URL = derefStr(url)
	c.APIKey = derefStr(apiKey)
	c.ToolPrefix = derefStr(toolPrefix)
	if err := decodeJSONInto(args, &c.Args); err != nil {
		return store.MCPServerConfig{}, err
	}
	if err := decodeJSONInto(headers, &c.Headers); err != nil {
		return store.MCPServerConfig{}, err
	}
	if err := decodeJSONInto(env, &c.Env); err != nil {
		return store.MCPServerConfig{}, err
	}
	return c, nil
}

func (s *MCPServerStore) ListServers(ctx context.Context) ([]store.MCPServerConfig, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+mcpServerColumns+" FROM mcp_servers ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.MCPServerConfig
	for rows.Next() {
		c, err := scanMCPServer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *MCPServerStore) GetServer(ctx context.Context, name string) (*store.MCPServerConfig, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+mcpServerColumns+" FROM mcp_servers WHERE name = $1", name)
	c, err := scanMCPServer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, err
	}
	return &c, nil
}

func (s *MCPServerStore) UpsertServer(ctx context.Context, cfg *store.MCPServerConfig) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO mcp_servers (name, transport, command, args, url, headers, env, api_key, tool_prefix, timeout_sec, enabled)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		 ON CONFLICT (name) DO UPDATE SET
		   transport = EXCLUDED.transport, command = EXCLUDED.command, args = EXCLUDED.args,
		   url = EXCLUDED.url, headers = EXCLUDED.headers, env = EXCLUDED.env,
		   api_key = EXCLUDED.api_key, tool_prefix = EXCLUDED.tool_prefix,
		   timeout_sec = EXCLUDED.timeout_sec, enabled = EXCLUDED.enabled`,
		cfg.Name, cfg.Transport, nilStr(cfg.Command), jsonOrNull(cfg.Args), nilStr(cfg.URL),
		jsonOrNull(cfg.Headers), jsonOrNull(cfg.Env), nilStr(cfg.APIKey), nilStr(cfg.ToolPrefix),
		cfg.TimeoutSec, cfg.Enabled,
	)
	return err
}

func (s *MCPServerStore) DeleteServer(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM mcp_servers WHERE name = $1", name)
	return err
}
