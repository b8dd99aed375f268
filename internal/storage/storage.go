package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Store struct {
	db *sql.DB
}

// GuildSetting holds the per-guild announcement configuration. An absent row
// means "not configured"; a row with an empty message means "configured,
// default text".
type GuildSetting struct {
	GuildID         string
	AnnounceChannel string
	AnnounceMessage string
}

type AuditLog struct {
	ID        int64
	GuildID   string
	UserID    string
	Level     string
	Event     string
	Details   string
	CreatedAt time.Time
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

func (s *Store) Migrate() error {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return err
	}

	var files []string
	for _, entry := range entries {
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	for _, file := range files {
		content, err := migrations.ReadFile(path.Join("migrations", file))
		if err != nil {
			return err
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			if isIgnorableMigrationError(err) {
				continue
			}
			return fmt.Errorf("migration %s failed: %w", file, err)
		}
	}
	return nil
}

func (s *Store) GetGuildSetting(ctx context.Context, guildID string) (GuildSetting, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT announce_channel, announce_message
		FROM guild_settings WHERE guild_id = ?`, guildID)

	setting := GuildSetting{GuildID: guildID}
	err := row.Scan(&setting.AnnounceChannel, &setting.AnnounceMessage)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return GuildSetting{}, false, nil
		}
		return GuildSetting{}, false, err
	}
	return setting, true, nil
}

func (s *Store) UpsertGuildSetting(ctx context.Context, setting GuildSetting) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO guild_settings (guild_id, announce_channel, announce_message)
		VALUES (?, ?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET
			announce_channel = excluded.announce_channel,
			announce_message = excluded.announce_message
	`, setting.GuildID, setting.AnnounceChannel, setting.AnnounceMessage)
	return err
}

func (s *Store) RemoveGuildSetting(ctx context.Context, guildID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM guild_settings WHERE guild_id = ?`, guildID)
	return err
}

func (s *Store) ListGuildSettings(ctx context.Context) ([]GuildSetting, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT guild_id, announce_channel, announce_message
		FROM guild_settings ORDER BY guild_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var settings []GuildSetting
	for rows.Next() {
		var setting GuildSetting
		if err := rows.Scan(&setting.GuildID, &setting.AnnounceChannel, &setting.AnnounceMessage); err != nil {
			return nil, err
		}
		settings = append(settings, setting)
	}
	return settings, rows.Err()
}

func (s *Store) GetCommand(ctx context.Context, name string) (string, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT response FROM custom_commands WHERE name = ?`, strings.ToLower(name))

	var response string
	if err := row.Scan(&response); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return response, true, nil
}

func (s *Store) SetCommand(ctx context.Context, name, response string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO custom_commands (name, response) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET response = excluded.response
	`, strings.ToLower(name), response)
	return err
}

func (s *Store) RemoveCommand(ctx context.Context, name string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM custom_commands WHERE name = ?`, strings.ToLower(name))
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *Store) ListCommands(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM custom_commands ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *Store) AddAuditLog(ctx context.Context, log AuditLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (guild_id, user_id, level, event, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, log.GuildID, log.UserID, log.Level, log.Event, log.Details, log.CreatedAt.Unix())
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, guildID string, since time.Time) ([]AuditLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, guild_id, user_id, level, event, details, created_at
		FROM audit_logs
		WHERE guild_id = ? AND created_at >= ?
		ORDER BY created_at DESC
	`, guildID, since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []AuditLog
	for rows.Next() {
		var log AuditLog
		var created int64
		if err := rows.Scan(&log.ID, &log.GuildID, &log.UserID, &log.Level, &log.Event, &log.Details, &created); err != nil {
			return nil, err
		}
		log.CreatedAt = time.Unix(created, 0)
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

func (s *Store) CleanupAuditLogs(ctx context.Context, retentionDays int) error {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	_, err := s.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE created_at < ?`, cutoff.Unix())
	return err
}

func isIgnorableMigrationError(err error) bool {
	if err == nil {
		return false
	}
	message := err.Error()
	return strings.Contains(message, "duplicate column name") || strings.Contains(message, "already exists")
}
