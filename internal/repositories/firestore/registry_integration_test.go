//go:build integration

package firestore

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	domain "github.com/matcha-bridge/api/internal/domain"
	"github.com/matcha-bridge/api/internal/platform/config"
	pfirestore "github.com/matcha-bridge/api/internal/platform/firestore"
	"github.com/matcha-bridge/api/internal/repositories"
	"github.com/matcha-bridge/api/internal/repositories/repotest"
)

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"

func TestFirestoreRepositoryContract(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping firestore emulator test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        firestoreEmulatorImage,
			ExposedPorts: []string{"8080/tcp"},
			Cmd:          []string{"gcloud", "beta", "emulators", "firestore", "start", "--host-port=0.0.0.0:8080"},
			WaitingFor:   wait.ForLog("Dev App Server is now running"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.PortEndpoint(ctx, "8080/tcp", "")
	if err != nil {
		t.Fatalf("failed to resolve emulator endpoint: %v", err)
	}

	// The emulator isolates data per project, so each test gets a fresh project.
	var projects atomic.Int64
	suite.Run(t, &repotest.ContractSuite{
		NewRegistry: func(ctx context.Context, rfqs []domain.RFQ) (repositories.Registry, error) {
			provider := pfirestore.NewProvider(config.FirestoreConfig{
				ProjectID:    fmt.Sprintf("contract-%d", projects.Add(1)),
				EmulatorHost: endpoint,
			})
			registry, err := NewRegistry(provider)
			if err != nil {
				return nil, err
			}
			for _, rfq := range rfqs {
				if err := registry.RFQStore().Insert(ctx, rfq); err != nil {
					return nil, err
				}
			}
			return registry, nil
		},
	})
}
