package notion

import (
	"fmt"
	"io"
	"log"
)

func sprintfPage(id string) string {
	return fmt.Sprintf(pageJSON, id, id, id)
}

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}
