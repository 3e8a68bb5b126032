// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides an epoll-based stand-in for the io_uring
// completion ring, used on kernels where io_uring is missing or disabled.
package reactor
