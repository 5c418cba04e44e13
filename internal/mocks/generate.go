package mocks

// Mock generation directives. Run `go generate ./internal/mocks/` to regenerate.

//go:generate go run go.uber.org/mock/mockgen -source=../vault/vault.go -destination=mock_vault.go -package=mocks
//go:generate go run go.uber.org/mock/mockgen -source=../metrics/recorder.go -destination=mock_recorder.go -package=mocks
