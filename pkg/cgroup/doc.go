// Package cgroup manages the launcher's isolated cgroup v1 hierarchy:
// one named root under the host's cgroup mount, with per-application
// subdirectories created on demand and torn down on app exit.
package cgroup
