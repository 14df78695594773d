package knowledgebase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lewisedginton/memory_engine/internal/storage_manager/mocks"
)

func TestNewFileStore(t *testing.T) {
	tests := []struct {
		name        string
		setupMock   func(*mocks.FileProvider)
		config      func(*mocks.FileProvider) FileStoreConfig
		expectError bool
		errorMsg    string
	}{
		{
			name: "empty knowledge base",
			setupMock: func(m *mocks.FileProvider) {
				m.EXPECT().List(mock.Anything, entriesPrefix).Return([]string{}, nil)
				m.EXPECT().List(mock.Anything, categoriesPrefix).Return([]string{}, nil)
			},
			config: func(m *mocks.FileProvider) FileStoreConfig {
				return FileStoreConfig{FileProvider: m, Logger: testLogger()}
			},
		},
		{
			name:      "missing file provider",
			setupMock: func(m *mocks.FileProvider) {},
			config: func(m *mocks.FileProvider) FileStoreConfig {
				return FileStoreConfig{Logger: testLogger()}
			},
			expectError: true,
			errorMsg:    "file provider is required",
		},
		{
			name:      "missing logger",
			setupMock: func(m *mocks.FileProvider) {},
			config: func(m *mocks.FileProvider) FileStoreConfig {
				return FileStoreConfig{FileProvider: m}
			},
			expectError: true,
			errorMsg:    "logger is required",
		},
		{
			name: "list error",
			setupMock: func(m *mocks.FileProvider) {
				m.EXPECT().List(mock.Anything, entriesPrefix).Return(nil, errors.New("storage error"))
			},
			config: func(m *mocks.FileProvider) FileStoreConfig {
				return FileStoreConfig{FileProvider: m, Logger: testLogger()}
			},
			expectError: true,
			errorMsg:    "failed to load knowledge base",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := mocks.NewFileProvider(t)
			tt.setupMock(m)

			s, err := NewFileStore(context.Background(), tt.config(m))
			if tt.expectError {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMsg)
				assert.Nil(t, s)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, s)
			}
		})
	}
}

func TestNewFileStore_SkipsBadFiles(t *testing.T) {
	m := mocks.NewFileProvider(t)
	good, _ := json.Marshal(Entry{ID: "kbe-1", DisplayName: "Dragon", TextContent: "Fire."})

	m.EXPECT().List(mock.Anything, entriesPrefix).Return([]string{
		"entries/kbe-1.json",
		"entries/bad.json",
		"entries/gone.json",
		"entries/notes.txt",
	}, nil)
	m.EXPECT().Read(mock.Anything, "entries/kbe-1.json").Return(good, nil)
	m.EXPECT().Read(mock.Anything, "entries/bad.json").Return([]byte("not json"), nil)
	m.EXPECT().Read(mock.Anything, "entries/gone.json").Return(nil, errors.New("permission denied"))
	m.EXPECT().List(mock.Anything, categoriesPrefix).Return([]string{}, nil)

	s, err := NewFileStore(context.Background(), FileStoreConfig{FileProvider: m, Logger: testLogger()})
	require.NoError(t, err)

	all, err := s.ListEntries(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Dragon", all[0].DisplayName)
}

func TestFileStore_WriteFailureLeavesCacheUntouched(t *testing.T) {
	m := mocks.NewFileProvider(t)
	m.EXPECT().List(mock.Anything, mock.Anything).Return([]string{}, nil)
	m.EXPECT().Write(mock.Anything, "entries/kbe-1.json", mock.Anything).Return(errors.New("disk full"))

	s, err := NewFileStore(context.Background(), FileStoreConfig{FileProvider: m, Logger: testLogger()})
	require.NoError(t, err)

	err = s.PutEntry(context.Background(), Entry{ID: "kbe-1", DisplayName: "x", TextContent: "y"})
	assert.ErrorContains(t, err, "disk full")

	_, err = s.GetEntry(context.Background(), "kbe-1")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}
