/* Copyright 2025 Fieldsync Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package inbox

import (
	"os"
	"sort"
	"sync"
	"time"
)

type observation struct {
	size    int64
	modTime time.Time
}

// settler holds back files that may still be written to
type settler struct {
	mu   sync.Mutex
	age  time.Duration
	now  func() time.Time
	seen map[string]observation
}

func newSettler(age time.Duration) *settler {
	return &settler{
		age:  age,
		now:  time.Now,
		seen: map[string]observation{},
	}
}

// track remembers a file reported by the watcher. It is first observed on the
// next check so that two observations are always a poll apart.
func (s *settler) track(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[path]; !ok {
		s.seen[path] = observation{size: -1}
	}
}

func (s *settler) setAge(age time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.age = age
}

// ready reports whether the file at path is complete, that is unchanged since
// it was last seen or not modified for at least the settle age. A file that is
// not ready is remembered until the next check. A file that is gone is
// forgotten.
func (s *settler) ready(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(path)
	if err != nil {
		delete(s.seen, path)
		return false
	}

	o := observation{size: info.Size(), modTime: info.ModTime()}
	prev, ok := s.seen[path]
	unchanged := ok && prev.size == o.size && prev.modTime.Equal(o.modTime)

	if unchanged || s.now().Sub(o.modTime) >= s.age {
		delete(s.seen, path)
		return true
	}

	s.seen[path] = o
	return false
}

// pending returns the files waiting to settle
func (s *settler) pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	paths := make([]string, 0, len(s.seen))
	for path := range s.seen {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	return paths
}
