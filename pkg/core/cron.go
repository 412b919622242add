// SPDX-FileCopyrightText: 2026 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package core

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// cronTick is the granularity at which registered jobs are checked.
const cronTick = 100 * time.Millisecond

type cronjob struct {
	task      func()
	interval  time.Duration
	nextEvent time.Time
}

// Cron manages jobs requiring interval based execution: the expiration
// sweeper and the store re-sweep.
type Cron struct {
	jobs  map[string]*cronjob
	mutex sync.Mutex

	stopSyn chan struct{}
	stopAck chan struct{}
}

// NewCron creates and starts an empty Cron instance.
func NewCron() *Cron {
	cron := &Cron{
		jobs:    make(map[string]*cronjob),
		stopSyn: make(chan struct{}),
		stopAck: make(chan struct{}),
	}

	go cron.loop()

	return cron
}

func (cron *Cron) loop() {
	ticker := time.NewTicker(cronTick)
	defer ticker.Stop()

	for {
		select {
		case <-cron.stopSyn:
			close(cron.stopAck)
			return

		case t := <-ticker.C:
			cron.fire(t)
		}
	}
}

func (cron *Cron) fire(t time.Time) {
	cron.mutex.Lock()
	defer cron.mutex.Unlock()

	for name, job := range cron.jobs {
		if job.nextEvent.After(t) {
			continue
		}

		job.nextEvent = t.Add(job.interval)
		go job.task()

		log.WithFields(log.Fields{
			"job":        name,
			"next_event": job.nextEvent,
		}).Debug("Cron executed job")
	}
}

// Register a new task by its name, function and interval. The task is
// executed in a fresh goroutine and must be thread-safe.
func (cron *Cron) Register(name string, task func(), interval time.Duration) error {
	cron.mutex.Lock()
	defer cron.mutex.Unlock()

	if _, exists := cron.jobs[name]; exists {
		return fmt.Errorf("a job named %s is already registered", name)
	}
	if interval <= 0 {
		return fmt.Errorf("interval %v is not positive", interval)
	}

	cron.jobs[name] = &cronjob{
		task:      task,
		interval:  interval,
		nextEvent: time.Now().Add(interval),
	}

	return nil
}

// Stop this Cron; running jobs finish on their own. Only call once.
func (cron *Cron) Stop() {
	close(cron.stopSyn)
	<-cron.stopAck
}
