package mocks

//go:generate mockgen -destination=./mock_provider.go -package=mocks github.com/rxtech-lab/marketboard/pkg/marketdata/provider Provider
//go:generate mockgen -destination=./mock_publisher.go -package=mocks github.com/rxtech-lab/marketboard/internal/publish Publisher
