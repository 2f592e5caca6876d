package dispatch

import (
	"errors"

	"github.com/vitrina-io/vitrina/internal/repo"
)

// isNotFound сужает ошибку хранилища до "сущность не найдена".
func isNotFound(err error) bool {
	return errors.Is(err, repo.ErrNotFound)
}
