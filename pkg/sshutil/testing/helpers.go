package testing

// WithDirs creates each directory, parents included, on client's filesystem.
func WithDirs(client *MockClient, dirs []string) {
	for _, dir := range dirs {
		_ = client.GetFS().MkdirAll(dir)
	}
}
