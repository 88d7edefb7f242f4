package repositories

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"dingbot/internal/platform/models"
)

var (
	ErrRobotNotFound = errors.New("robot not found")
	ErrRobotExists   = errors.New("robot name already registered")
)

type RobotRepository struct {
	db *sql.DB
}

func NewRobotRepository(db *sql.DB) *RobotRepository {
	return &RobotRepository{db: db}
}

const robotColumns = `id, name, webhook_url, secret, status, created_at, updated_at`

func (r *RobotRepository) Create(robot *models.Robot) error {
	robot.ID = "rb_" + uuid.New().String()
	robot.CreatedAt = time.Now().Unix()
	robot.UpdatedAt = robot.CreatedAt
	if robot.Status == "" {
		robot.Status = models.RobotStatusActive
	}

	query := `
		INSERT INTO robots (id, name, webhook_url, secret, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, robot.ID, robot.Name, robot.WebhookURL, robot.Secret, robot.Status, robot.CreatedAt, robot.UpdatedAt)
	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return ErrRobotExists
	}
	return err
}

func (r *RobotRepository) GetByID(id string) (*models.Robot, error) {
	row := r.db.QueryRow(`SELECT `+robotColumns+` FROM robots WHERE id = ?`, id)
	return scanRobot(row)
}

func (r *RobotRepository) GetByName(name string) (*models.Robot, error) {
	row := r.db.QueryRow(`SELECT `+robotColumns+` FROM robots WHERE name = ?`, name)
	return scanRobot(row)
}

func (r *RobotRepository) List() ([]*models.Robot, error) {
	rows, err := r.db.Query(`SELECT ` + robotColumns + ` FROM robots ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	robots := []*models.Robot{}
	for rows.Next() {
		robot, err := scanRobot(rows)
		if err != nil {
			return nil, err
		}
		robots = append(robots, robot)
	}
	return robots, rows.Err()
}

func (r *RobotRepository) Update(robot *models.Robot) error {
	robot.UpdatedAt = time.Now().Unix()

	query := `
		UPDATE robots
		SET name = ?, webhook_url = ?, secret = ?, status = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := r.db.Exec(query, robot.Name, robot.WebhookURL, robot.Secret, robot.Status, robot.UpdatedAt, robot.ID)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return ErrRobotExists
		}
		return err
	}
	return expectOne(res)
}

func (r *RobotRepository) Delete(id string) error {
	res, err := r.db.Exec(`DELETE FROM robots WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRobot(row rowScanner) (*models.Robot, error) {
	var robot models.Robot
	var secret sql.NullString

	err := row.Scan(&robot.ID, &robot.Name, &robot.WebhookURL, &secret, &robot.Status, &robot.CreatedAt, &robot.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRobotNotFound
	}
	if err != nil {
		return nil, err
	}

	if secret.Valid {
		robot.Secret = secret.String
	}
	return &robot, nil
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRobotNotFound
	}
	return nil
}
