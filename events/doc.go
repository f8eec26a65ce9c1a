// Package events публикует lifecycle-события runtime.
//
// # Обзор
//
// TaskRunner публикует события на каждой фазе цикла:
//
//   - PollStarted / PollCompleted / PollFailure — вокруг poll-запроса
//   - TaskExecutionStarted / TaskExecutionCompleted / TaskExecutionFailure —
//     вокруг выполнения каждого task
//
// Dispatcher — типизированная pub/sub шина по Kind события.
// Доставка best-effort: panic в одном listener'е изолируется
// и не мешает остальным listener'ам и публикующей стороне.
//
// # Встроенные listener'ы
//
//   - MetricsListener — счётчики и гистограммы Prometheus
//   - AMQPListener — пересылка событий в exchange RabbitMQ
//   - HistoryListener (пакет history) — запись в Postgres
package events
